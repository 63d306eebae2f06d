// SPDX-License-Identifier: MPL-2.0

// Package config handles bmadx configuration using Viper with CUE as the file
// format.
//
// Configuration is loaded from $XDG_CONFIG_HOME/bmadx/config.cue (or the
// platform equivalent), falling back to ./config.cue and finally to built-in
// defaults. Files are validated against the embedded #Config schema
// (config_schema.cue) before they are merged, and BMADX_* environment
// variables override both.
package config
