// Package validation provides struct and programmatic validation for
// fixturekit definitions and configuration.
//
// # Struct Tag Validation
//
//	type Definition struct {
//	    Name string `validate:"required,fixturename"`
//	}
//	err := validation.Validate(def)
//
// # Programmatic Validation
//
//	v := validation.New()
//	v.Check(def.Factory != nil || def.Producer != nil, "factory", "is required")
//	err := v.Validate()
package validation
