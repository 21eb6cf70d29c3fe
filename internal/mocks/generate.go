// Package mocks provides mock implementations of the core ports for testing the generation pipeline.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for our port interfaces.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	mockRepo := mocks.NewMockGenerationJobRepository(ctrl)
//	mockRepo.EXPECT().ClaimNext(gomock.Any(), 600).Return(job, nil)
package mocks

// Generate mock for GenerationJobRepository interface from internal/core package.
// This creates MockGenerationJobRepository with methods for all GenerationJobRepository interface methods:
// CreateBatch, GetByID, ClaimNext, Heartbeat, Complete, Fail, Stats, ListRecent
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=generation_job_repository_mock.go github.com/medforge/contentgen/internal/core GenerationJobRepository

// Generate mock for Provider interface from internal/core package.
// This creates MockProvider with methods for all Provider interface methods:
// Kind, Configured, Complete
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=provider_mock.go github.com/medforge/contentgen/internal/core Provider
