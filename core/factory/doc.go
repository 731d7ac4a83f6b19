// Package factory instantiates pluggable modules from configuration. A module
// is described by a type name and a map of raw settings, which the
// registered factory decodes with Decode:
//
//	metrics:
//	  sinks:
//	    - type: influx
//	      conf:
//	        url: http://influx:8086
//	        bucket: eosbridge
//
// Settings coming from EOSB_ environment overrides are strings; Decode
// converts them to the target field types.
package factory
