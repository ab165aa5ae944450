/*
Package integrations adapts common Go libraries to the agent.

# Overview

Each integration uses only the Instrumenter surface: requests are started
for inbound work, spans for outbound calls, and tags are attached through
the trace units. None of them touch the transport.

# Integrations

  - Gin middleware starts one request per HTTP request
  - gRPC server interceptors start one request per call; the client
    interceptor records a span per outbound call
  - Resty hooks record a span per outbound HTTP request
  - DB wraps *sql.DB and records a span per query

# Usage

	router := gin.New()
	router.Use(integrations.Gin(a))

	server := grpc.NewServer(
		grpc.UnaryInterceptor(integrations.UnaryServerInterceptor(a)),
		grpc.StreamInterceptor(integrations.StreamServerInterceptor(a)),
	)

	client := integrations.Resty(a, resty.New())
	db := integrations.WrapDB(a, sqlDB)
*/
package integrations
