// Package taskpoll resolves asynchronous backend tasks. A Poller waits a fixed
// interval before every status query, returns the SUCCESS result, surfaces
// FAILURE immediately, and gives up after a bounded number of attempts.
//
// The wait is delegated to a Clock so tests can drive polls without sleeping,
// and every poll honors context cancellation between attempts.
package taskpoll
