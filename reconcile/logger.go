// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package reconcile

import (
	"github.com/google/uuid"
	"github.com/grailbio/base/log"
)

// Logger receives progress and failure reports from a reconciliation run.
// Implementations must be safe for concurrent use; donors are processed in
// parallel.
type Logger interface {
	Printf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// NewRunID returns a fresh identifier for one reconciliation run.
func NewRunID() string {
	return uuid.New().String()
}

type runLogger struct {
	prefix string
}

// NewRunLogger returns a Logger that writes to the process log, tagging every
// line with runID.
func NewRunLogger(runID string) Logger {
	return runLogger{prefix: "[" + runID + "] "}
}

func (l runLogger) Printf(format string, args ...interface{}) {
	log.Printf(l.prefix+format, args...)
}

func (l runLogger) Debugf(format string, args ...interface{}) {
	log.Debug.Printf(l.prefix+format, args...)
}

func (l runLogger) Errorf(format string, args ...interface{}) {
	log.Error.Printf(l.prefix+format, args...)
}
