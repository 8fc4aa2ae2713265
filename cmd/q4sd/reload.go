// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"

	"github.com/q4s/q4s-go/pkg/measure"
)

// reloadable settings of a running server.Server, applied to new Sessions.
type reloadable interface {
	SetBounds(bounds measure.Bounds)
	SetAlertPauses(alertPause, recoveryPause time.Duration)
}

// reloader watches the configuration file and applies changed bounds and alert pauses.
type reloader struct {
	filename string
	target   reloadable
	watcher  *fsnotify.Watcher
}

// newReloader watches the file's directory, as editors tend to replace files instead of writing them.
func newReloader(filename string, target reloadable) (r *reloader, err error) {
	if filename, err = filepath.Abs(filename); err != nil {
		return
	}

	r = &reloader{
		filename: filename,
		target:   target,
	}

	if r.watcher, err = fsnotify.NewWatcher(); err != nil {
		return nil, err
	}
	if err = r.watcher.Add(filepath.Dir(filename)); err != nil {
		_ = r.watcher.Close()
		return nil, err
	}
	return
}

// run until the context is done.
func (r *reloader) run(ctx context.Context) {
	defer func() { _ = r.watcher.Close() }()

	for {
		select {
		case <-ctx.Done():
			return

		case e, ok := <-r.watcher.Events:
			if !ok {
				log.Error("fsnotify's Event channel was closed")
				return
			}

			if filepath.Clean(e.Name) != r.filename || e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			if err := r.reload(); err != nil {
				log.WithError(err).WithField("file", r.filename).Warn("Reloading configuration failed, keeping the old one")
			}

		case err, ok := <-r.watcher.Errors:
			if !ok {
				log.Error("fsnotify's Errors channel was closed")
				return
			}

			log.WithError(err).Warn("fsnotify errored")
		}
	}
}

// reload the bounds and alert pauses. Other changes require a restart.
func (r *reloader) reload() error {
	conf, err := parseConfig(r.filename)
	if err != nil {
		return err
	}

	bounds, err := parseBounds(conf.Bounds)
	if err != nil {
		return err
	}
	alertPause, recoveryPause := conf.Alert.pauses()

	r.target.SetBounds(bounds)
	r.target.SetAlertPauses(alertPause, recoveryPause)

	log.WithFields(log.Fields{
		"file":           r.filename,
		"bounds":         bounds,
		"alert-pause":    alertPause,
		"recovery-pause": recoveryPause,
	}).Info("Reloaded configuration")
	return nil
}
