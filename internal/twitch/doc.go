// Package twitch implements the EventSub integration: app access token
// management, the helix API client, subscription lifecycle, and the
// webhook ingestion endpoint.
package twitch
