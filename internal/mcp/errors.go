// Package mcp implements the Model Context Protocol (MCP) server.
package mcp

import (
	"context"
	"errors"
	"fmt"

	mmerr "github.com/kodewright/miller/internal/errors"
)

// Custom MCP error codes.
const (
	// ErrCodeWorkspaceNotFound indicates the workspace is not registered.
	ErrCodeWorkspaceNotFound = -32001

	// ErrCodeSymbolNotFound indicates a lookup found no matching symbol.
	ErrCodeSymbolNotFound = -32002

	// ErrCodeTimeout indicates the request timed out.
	ErrCodeTimeout = -32003

	// ErrCodeFileNotFound indicates a file no longer exists on disk.
	ErrCodeFileNotFound = -32004

	// ErrCodeFileTooLarge indicates a file is too large to process.
	ErrCodeFileTooLarge = -32005

	// Standard JSON-RPC error codes.
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Sentinel errors for internal use.
var (
	// ErrWorkspaceNotFound indicates the workspace is not registered.
	ErrWorkspaceNotFound = errors.New("workspace not found")

	// ErrSymbolNotFound indicates a lookup found no matching symbol.
	ErrSymbolNotFound = errors.New("symbol not found")

	// ErrFileTooLarge indicates a file is too large to process.
	ErrFileTooLarge = errors.New("file too large")

	// ErrToolNotFound indicates the requested tool does not exist.
	ErrToolNotFound = errors.New("tool not found")

	// ErrInvalidParams indicates invalid parameters were provided.
	ErrInvalidParams = errors.New("invalid parameters")

	// ErrResourceNotFound indicates the requested resource does not exist.
	ErrResourceNotFound = errors.New("resource not found")
)

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors. It maps known error
// types to appropriate MCP error codes and messages.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var me *mmerr.MillerError
	if errors.As(err, &me) {
		return mapMillerError(me)
	}

	switch {
	case errors.Is(err, ErrWorkspaceNotFound):
		return &MCPError{
			Code:    ErrCodeWorkspaceNotFound,
			Message: "Workspace not found. Use manage_workspace(operation=\"add\") to register it.",
		}
	case errors.Is(err, ErrSymbolNotFound):
		return &MCPError{
			Code:    ErrCodeSymbolNotFound,
			Message: "Symbol not found.",
		}
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{
			Code:    ErrCodeTimeout,
			Message: "Request timed out.",
		}
	case errors.Is(err, context.Canceled):
		return &MCPError{
			Code:    ErrCodeTimeout,
			Message: "Request was canceled.",
		}
	case errors.Is(err, ErrFileTooLarge):
		return &MCPError{
			Code:    ErrCodeFileTooLarge,
			Message: "File is too large to process.",
		}
	case errors.Is(err, ErrToolNotFound):
		return &MCPError{
			Code:    ErrCodeMethodNotFound,
			Message: "Tool not found.",
		}
	case errors.Is(err, ErrInvalidParams):
		return &MCPError{
			Code:    ErrCodeInvalidParams,
			Message: "Invalid parameters.",
		}
	case errors.Is(err, ErrResourceNotFound):
		return &MCPError{
			Code:    ErrCodeMethodNotFound,
			Message: "Resource not found.",
		}
	default:
		return &MCPError{
			Code:    ErrCodeInternalError,
			Message: "Internal server error.",
		}
	}
}

// NewInvalidParamsError creates an error for invalid parameters with a custom message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{
		Code:    ErrCodeInvalidParams,
		Message: msg,
	}
}

// NewMethodNotFoundError creates an error for unknown methods/tools.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{
		Code:    ErrCodeMethodNotFound,
		Message: fmt.Sprintf("Tool '%s' not found.", name),
	}
}

// NewResourceNotFoundError creates an error for unknown resources.
func NewResourceNotFoundError(uri string) *MCPError {
	return &MCPError{
		Code:    ErrCodeMethodNotFound,
		Message: fmt.Sprintf("Resource '%s' not found.", uri),
	}
}

// mapMillerError converts a MillerError to an MCPError by its Class:
// Contract errors surface as invalid params, retryable Transient errors
// as timeouts, everything else as internal.
func mapMillerError(me *mmerr.MillerError) *MCPError {
	message := me.Message
	if me.Suggestion != "" {
		message = fmt.Sprintf("%s %s", me.Message, me.Suggestion)
	}

	switch me.Class {
	case mmerr.ClassContract:
		return &MCPError{
			Code:    ErrCodeInvalidParams,
			Message: message,
		}
	case mmerr.ClassTransient:
		if me.Retryable {
			return &MCPError{
				Code:    ErrCodeTimeout,
				Message: message,
			}
		}
		return &MCPError{
			Code:    ErrCodeInternalError,
			Message: message,
		}
	default: // ClassIntegrity, ClassFatal
		return &MCPError{
			Code:    ErrCodeInternalError,
			Message: message,
		}
	}
}
