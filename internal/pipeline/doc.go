// Package pipeline turns one encode request into a terminal outcome.
//
// A job moves queued -> fetching -> probing -> encoding -> reporting
// and ends completed or failed. Every job owns a working directory
// that no other job can reach; the directory is removed on every exit
// path, including panics in the encode step and caller cancellation.
// Concurrency is bounded by a counting semaphore sized to the
// configured limit (or the CPU count), so a burst of requests cannot
// spawn an unbounded number of ffmpeg processes.
//
// The pipeline reports progress through the Reporter interface and
// never knows which transport carries the result back to the user.
package pipeline
