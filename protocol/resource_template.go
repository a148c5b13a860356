package protocol

import (
	"fmt"

	"github.com/yosida95/uritemplate/v3"
)

// ExpandResourceTemplate expands an RFC 6570 URI template (the form
// ResourceTemplate.URITemplate carries) against a set of named variables,
// producing the concrete URI a resources/read call would use.
func ExpandResourceTemplate(rawTemplate string, vars map[string]string) (string, error) {
	tmpl, err := uritemplate.New(rawTemplate)
	if err != nil {
		return "", fmt.Errorf("protocol: invalid resource template %q: %w", rawTemplate, err)
	}
	values := uritemplate.Values{}
	for name, v := range vars {
		values.Set(name, uritemplate.String(v))
	}
	expanded, err := tmpl.Expand(values)
	if err != nil {
		return "", fmt.Errorf("protocol: expanding resource template %q: %w", rawTemplate, err)
	}
	return expanded, nil
}

// TemplateVariables returns the variable names referenced by a resource
// template, in first-use order, so a client can prompt for them or validate
// a supplied variable set before expansion.
func TemplateVariables(rawTemplate string) ([]string, error) {
	tmpl, err := uritemplate.New(rawTemplate)
	if err != nil {
		return nil, fmt.Errorf("protocol: invalid resource template %q: %w", rawTemplate, err)
	}
	seen := map[string]bool{}
	var names []string
	for _, v := range tmpl.Varnames() {
		if !seen[v] {
			seen[v] = true
			names = append(names, v)
		}
	}
	return names, nil
}
