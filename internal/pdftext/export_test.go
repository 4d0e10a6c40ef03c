package pdftext

// Exported test-only accessors for unexported functions and fields.
// This file is compiled only during tests and does not affect the public API.

// ConfigForTest returns a copy of the processor configuration for assertions in tests.
func (processor *Processor) ConfigForTest() Options { return processor.config }

// ValidateConfigForTest exposes validateConfig.
func (processor *Processor) ValidateConfigForTest() error { return processor.validateConfig() }

// OpenerForTest returns the resolved backend.
func (processor *Processor) OpenerForTest() Opener { return processor.opener }
