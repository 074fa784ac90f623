package config

import "os"

// EnvReader abstracts environment variable access.
type EnvReader interface {
	Getenv(key string) string
}

// OSEnv reads the process environment.
type OSEnv struct{}

func (OSEnv) Getenv(key string) string {
	return os.Getenv(key)
}

// MapEnv serves variables from a map.
type MapEnv map[string]string

func (m MapEnv) Getenv(key string) string {
	return m[key]
}
