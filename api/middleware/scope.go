/*
Copyright 2024 Paychain Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package middleware

import "strings"

// Resource is a group of caller routes an API key can be scoped to.
type Resource string

// Action is what a scope allows on a resource.
type Action string

const (
	ActionRead  Action = "read"
	ActionWrite Action = "write"
	ActionAll   Action = "*"

	ResourceAccounts     Resource = "accounts"
	ResourceTransfers    Resource = "transfers"
	ResourceBillPayments Resource = "bill-payments"
	ResourceTransactions Resource = "transactions"
	ResourceAll          Resource = "*"
)

var methodToAction = map[string]Action{
	"GET":  ActionRead,
	"HEAD": ActionRead,
	"POST": ActionWrite,
	"PUT":  ActionWrite,
}

// BuildScope formats a scope as resource:action.
func BuildScope(resource Resource, action Action) string {
	return string(resource) + ":" + string(action)
}

// ParseScope splits a resource:action scope. Malformed scopes parse to empty values.
func ParseScope(scope string) (Resource, Action) {
	resource, action, ok := strings.Cut(scope, ":")
	if !ok || resource == "" || action == "" || strings.Contains(action, ":") {
		return "", ""
	}
	return Resource(resource), Action(action)
}

// HasPermission reports whether any of scopes allows method on resource.
func HasPermission(scopes []string, resource Resource, method string) bool {
	action, ok := methodToAction[method]
	if !ok {
		return false
	}
	for _, scope := range scopes {
		r, a := ParseScope(scope)
		if (r == resource || r == ResourceAll) && (a == action || a == ActionAll) {
			return true
		}
	}
	return false
}
