// Package events provides a small typed publish/subscribe dispatcher.
//
// A Dispatcher delivers each published value to every current subscriber,
// synchronously and in subscription order. Subscribers that need to do slow
// work should hand the event off to their own goroutine.
package events
