// Package ws implements the WebSocket display sink of the live map.
//
// Hub.Render is called by the live map session after every event and pushes
//
//	{
//	  "event": "markers",
//	  "data":  { /* same schema as GET /api/v1/live/markers */ }
//	}
//
// to every connected client. A client connecting later receives the last
// rendered view right away. The upgrader accepts all origins; restrict them
// at the reverse proxy. The hub is mounted at /ws/markers.
package ws
