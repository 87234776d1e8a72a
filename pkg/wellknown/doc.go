// Package wellknown serves the protocol discovery document.
//
// A wallet needs the chain id, the factory address, the two-factor
// verifier and the typed-data domain of each contract kind before it can
// sign anything. GET /.well-known/pluser-configuration returns all of them
// in one cacheable JSON document.
//
// # Basic Usage
//
//	handler := wellknown.NewHandler(wellknown.Config{
//	    Factory: f,
//	    BaseURL: "https://pluser.example.com",
//	    Endpoints: map[string]string{
//	        "factory":  "/api/factory",
//	        "recovery": "/api/recovery",
//	    },
//	})
//
//	r := chi.NewRouter()
//	handler.RegisterRoutesWithPrefix(func(pattern string, h http.HandlerFunc) {
//	    r.Get(pattern, h)
//	})
//
// The recovery-manager and account domains carry no verifying contract in
// the document: each instance signs under its own address.
package wellknown
