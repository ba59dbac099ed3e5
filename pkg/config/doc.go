// Package config provides layered configuration management using Viper.
//
// Configuration is merged global -> project -> local, later files
// overriding earlier ones field by field, then validated.
package config
