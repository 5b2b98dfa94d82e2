// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package api defines the capability interfaces and shared constants of the
// fanpoll selector: the contract a registerable channel must satisfy, the
// operation bits exchanged between applications and selectors, and the error
// kinds every component reports.
package api
