// Package command defines the sessiond command-line application.
//
// It uses urfave/cli/v2:
//
//	sessiond serve          run the session manager
//	sessiond check-config   load, validate and print the configuration (--format)
//	sessiond version        print build information
//
// Global flags select the configuration file and an optional .env file that
// is loaded into the environment before configuration is read.
package command
