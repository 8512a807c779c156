// Package datasets registers all dataset definitions with the core registry.
// Import this package for its side effects to make the datasets available.
package datasets

// Each dataset file uses init() to register its definition.
