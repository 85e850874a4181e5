package config

// Configer is the configuration lookup interface used throughout the
// staging services. The daemon backs it with a dotenv file; tests back
// it with a MapConfig so they never touch the process environment.
type Configer interface {
	LoadFromPath(path string) error
	Load() error
	GetKey(key string) string
	MustGetKey(key string) string
	GetKeyWithDefault(key, defaultValue string) string
	GetIntKey(key string) int
	MustGetIntKey(key string) int
	GetIntKeyWithDefault(key string, defaultValue int) int
}
