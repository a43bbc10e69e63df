// Package dedupe tracks short-lived in-flight markers so the same operation
// is not started twice while a previous attempt is still running.
package dedupe
