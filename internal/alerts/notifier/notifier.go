// SPDX-FileCopyrightText: The Weathervane Authors
//
// SPDX-License-Identifier: MIT

// Package notifier provides the alert notification backends: desktop notifications via
// D-Bus and a log-based fallback for headless use.
package notifier

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/weathervane-app/weathervane/internal/forecast"
	"github.com/weathervane-app/weathervane/internal/logger"
)

const (
	notifyObject    = "org.freedesktop.Notifications"
	notifyPath      = "/org/freedesktop/Notifications"
	notifyMethod    = "org.freedesktop.Notifications.Notify"
	appName         = "weathervane"
	expireMillisecs = int32(30000)
)

// Desktop delivers alert notifications via the org.freedesktop.Notifications D-Bus
// interface.
type Desktop struct {
	conn *dbus.Conn
}

// NewDesktop connects to the session bus and returns a Desktop notifier.
func NewDesktop() (*Desktop, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	return &Desktop{conn: conn}, nil
}

// Notify sends a desktop notification for the given alert. The notification urgency is
// derived from the alert severity.
func (d *Desktop) Notify(_ context.Context, alert forecast.Alert, loc forecast.Location) error {
	summary := alert.Event
	if summary == "" {
		summary = alert.Headline
	}
	body := alert.Headline
	if loc.Name != "" {
		body = fmt.Sprintf("%s: %s", loc.Name, alert.Headline)
	}

	hints := map[string]dbus.Variant{
		"urgency": dbus.MakeVariant(urgency(alert.Severity)),
	}
	obj := d.conn.Object(notifyObject, notifyPath)
	call := obj.Call(notifyMethod, 0, appName, uint32(0), "weather-severe-alert", summary, body,
		[]string{}, hints, expireMillisecs)
	if call.Err != nil {
		return fmt.Errorf("failed to send desktop notification: %w", call.Err)
	}
	return nil
}

// Close closes the underlying bus connection.
func (d *Desktop) Close() error {
	return d.conn.Close()
}

// urgency maps an alert severity to a freedesktop notification urgency level.
func urgency(severity forecast.Severity) byte {
	switch severity {
	case forecast.SeverityMinor:
		return 0
	case forecast.SeveritySevere, forecast.SeverityExtreme:
		return 2
	default:
		return 1
	}
}

// Log is a Notifier that writes alert notifications to the log. It is used headless
// and as the fallback when no session bus is available.
type Log struct {
	logger *logger.Logger
}

// NewLog returns a new log-based Notifier.
func NewLog(log *logger.Logger) *Log {
	return &Log{logger: log}
}

// Notify logs the alert notification.
func (l *Log) Notify(_ context.Context, alert forecast.Alert, loc forecast.Location) error {
	l.logger.Info("weather alert", "location", loc.Name, "event", alert.Event,
		"severity", alert.Severity.String(), "headline", alert.Headline)
	return nil
}
