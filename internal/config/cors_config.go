package config

import "strings"

type Cors struct {
	env EnvVars
}

var _ CorsConfig = Cors{}

type AllowedOrigins map[string]struct{}
type nullValue = struct{}

func (a AllowedOrigins) IsAllowedOrigin(origin string) bool {
	_, ok := a[origin]
	return ok
}

func (a AllowedOrigins) String() string {
	var origins []string
	for k := range a {
		origins = append(origins, k)
	}
	return strings.Join(origins, ", ")
}

// GetAllowedOrigins allows the configured frontend origin only. The
// portal UI is the single credentialed consumer of this API.
func (c Cors) GetAllowedOrigins() AllowedOrigins {
	return AllowedOrigins{c.env.GetFrontendOrigin(): nullValue{}}
}

func (Cors) GetAllowedMethods() string {
	return "GET, POST, PUT, PATCH, DELETE"
}

func (Cors) GetAllowedHeaders() string {
	return "Content-Type, Authorization"
}
