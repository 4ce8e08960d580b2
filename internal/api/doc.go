// Package api implements the HTTP surface of the picture service: the users
// and pics resource handlers, basic-auth authorization, and the chunked
// upload protocol for picture creation.
package api
