// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api is the client for the Arth chat service.
//
// It sends chat messages and hands the reply bytes to the reply package as
// a reply.Source, over one of three transports:
//
//   - http: the chunked body of the POST /chat response
//   - sse: Server-Sent Events, one chunk per data payload
//   - websocket: one chunk per WebSocket message
//
// It also registers media uploads with POST /media/chat/upload.
//
// # Usage
//
//	client := api.NewClient(&api.ClientConfig{Token: token})
//	medias, _, err := client.UploadAll(ctx, sid, cid, []api.MediaDescriptor{
//	    api.ImageDescriptor("holdings.png"),
//	})
//	ctrl := session.NewController(client.Opener(api.TransportHTTP))
//	h, err := ctrl.Send(ctx, session.Request{SessionID: sid, Message: "Analyse", Medias: medias}, cb)
//
// Errors are *ClientError values; use IsUnauthorized, IsTimeout and
// IsUnavailable to branch on them.
package api
