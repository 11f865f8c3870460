// Package youtube implements the PubSubHubbub integration: hub
// subscribe/unsubscribe requests, the verification handshake, Atom feed
// notification parsing, and broadcast classification via the Data API.
package youtube
