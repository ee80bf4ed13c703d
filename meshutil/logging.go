/*
 * Copyright 2026 The FsrMesh Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

// Package meshutil carries the ambient stack shared by every mesh
// component: structured logging and metrics registration. It has no
// mesh-domain knowledge of its own.
package meshutil

import (
	"log"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var atomicLevel = zap.NewAtomicLevel()

func timeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("2006/01/02 15:04:05.000"))
}

// NewLogger returns a sugared zap logger tagged with node, the name of
// the running process (e.g. a node's short MAC). Every log line carries
// a timestamp, level, and caller location.
func NewLogger(node string) *zap.SugaredLogger {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = atomicLevel
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeTime = timeEncoder
	cfg.InitialFields = map[string]interface{}{"node": node}

	logger, err := cfg.Build()
	if err != nil {
		log.Panicf("cannot build logger: %v", err)
	}

	return logger.Sugar()
}

// SetLevel adjusts the log level of every logger built by NewLogger,
// matching ap.wifid's runtime-tunable "log_level" property.
func SetLevel(level string) error {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return err
	}
	atomicLevel.SetLevel(l)
	return nil
}
