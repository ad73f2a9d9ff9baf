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

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/paychain-labs/paychain/config"
)

const (
	KeyHeader = "X-Paychain-Key"

	// ContextMasterKey is set on requests authenticated with the server secret key.
	ContextMasterKey = "isMasterKey"
	// ContextAPIKey holds the name of the caller key that authenticated the request.
	ContextAPIKey = "apiKey"
)

var pathToResource = map[string]Resource{
	"accounts":      ResourceAccounts,
	"transfers":     ResourceTransfers,
	"bill-payments": ResourceBillPayments,
	"transactions":  ResourceTransactions,
}

// resourceFromPath maps the first path segment to a caller resource. Admin and
// metrics paths have none.
func resourceFromPath(path string) Resource {
	first, _, _ := strings.Cut(strings.TrimPrefix(path, "/"), "/")
	return pathToResource[first]
}

// Authenticate guards every route when server.secure is on. The master key passes
// everywhere; caller keys from server.api_keys pass only on caller routes their
// scopes allow. The health check at "/" is always open.
func Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/" {
			c.Next()
			return
		}

		conf, err := config.Fetch()
		if err == nil && !conf.Server.Secure {
			c.Next()
			return
		}

		key := c.GetHeader(KeyHeader)
		if key == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required. Use X-Paychain-Key header"})
			return
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Secret key is not configured"})
			return
		}

		if conf.Server.SecretKey != "" && secureCompare(conf.Server.SecretKey, key) {
			c.Set(ContextMasterKey, true)
			c.Next()
			return
		}

		apiKey, ok := findAPIKey(conf.Server.APIKeys, key)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
			return
		}

		resource := resourceFromPath(c.Request.URL.Path)
		if resource == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "API keys cannot access this route"})
			return
		}
		if !HasPermission(apiKey.Scopes, resource, c.Request.Method) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions for " + BuildScope(resource, methodToAction[c.Request.Method])})
			return
		}

		c.Set(ContextAPIKey, apiKey.Name)
		c.Next()
	}
}

// RequireMasterKey guards operator routes whatever server.secure says. Only the
// server secret key passes.
func RequireMasterKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		conf, err := config.Fetch()
		if err != nil || conf.Server.SecretKey == "" {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Secret key is not configured"})
			return
		}

		key := c.GetHeader(KeyHeader)
		if key == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required. Use X-Paychain-Key header"})
			return
		}
		if !secureCompare(conf.Server.SecretKey, key) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid secret key"})
			return
		}

		c.Set(ContextMasterKey, true)
		c.Next()
	}
}

func findAPIKey(keys []config.APIKey, key string) (config.APIKey, bool) {
	for _, k := range keys {
		if k.Key != "" && secureCompare(k.Key, key) {
			return k, true
		}
	}
	return config.APIKey{}, false
}

func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
