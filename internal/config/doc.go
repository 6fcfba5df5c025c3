// Package config provides the typed configuration of the gRPC runtime.
//
// A ServerConfig is resolved once at process start by Load, which layers
// GRPC_* environment variables over an optional YAML file over defaults,
// then validates the result:
//
//	cfg, err := config.Load(os.Getenv("GRPC_CONFIG_FILE"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// The server copies the value it is given and never mutates it.
package config
