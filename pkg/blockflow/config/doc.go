/*
Package config loads runtime configuration from YAML or JSON.

# Basic Usage

	cfg, err := config.FromFile("blockflow.yaml")
	if err != nil {
	    return err
	}
	if err := cfg.Validate(); err != nil {
	    return err
	}
	rt, err := local.FromConfig(cfg, local.WithLogger(cfg.NewLogger(os.Stderr)))

A complete file:

	workers: 8
	backend: relocatable
	relocate_on_acquire: true
	abort_on_error: true
	shutdown_timeout: 30s
	metrics: true
	tracing: false
	log:
	  level: debug
	  format: json
	store:
	  kind: pebble
	  path: /var/lib/blockflow/spill

Every field is optional; missing fields keep the values from Default.
Values of the wrong type are ignored the same way, so a typo in a number
never fails the load. Validate reports out-of-range values.

# Values

Values is the untyped document behind the loader. Its accessors tolerate
the numeric types both decoders produce (int from YAML, float64 from
JSON), and Duration accepts either "30s" or a number of seconds.
*/
package config
