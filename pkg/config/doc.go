// Package config loads typed configuration from the environment.
//
// Structs are annotated with caarlos0/env tags; an optional .env file is read
// with godotenv before the first parse. Results are cached per type and
// prefix. Types whose pointer implements Validator are checked before they
// are returned:
//
//	type Config struct {
//		Addr string `env:"HTTP_ADDR" envDefault:":8080"`
//	}
//
//	func (c *Config) Validate() error { ... }
//
//	var cfg Config
//	if err := config.Load(&cfg, config.WithPrefix("TENANTD_")); err != nil {
//		return err
//	}
package config
