// Package config loads, validates, and writes the k8r configuration file.
//
// The file is YAML with `apiVersion: k8r.jacobcolvin.com/v1beta1` and
// `kind: Configuration`. Its JSON schema is reflected from [Config] at
// runtime and documents are validated against it before decoding.
package config
