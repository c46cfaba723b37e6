package model

import "time"

const DefaultTimeout = 500 * time.Millisecond
const DefaultQueryTimeout = 3 * time.Second
const DefaultHistoryPageSize = 50
const DefaultAllocationWorkerCount = 4

const HeaderContentType = "Content-Type"

type ContextKey string

const (
	KeyContextLogger ContextKey = "logger"
	KeyContextClaims ContextKey = "claims"
)

const KeyLoggerError = "error"
