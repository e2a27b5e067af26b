/*
Package chatkit implements the server side of the ChatKit chat-widget protocol.

A request is a JSON envelope {"type", "params", "metadata"}. Server.Process
decodes it, keeps thread metadata and items in a ThreadStore and dispatches
message turns and widget actions to a Handler. Turn requests produce a
StreamingResult, a lazy sequence of events framed as Server-Sent Events.
Every other request produces a NonStreamingResult holding pre-serialized JSON.

Supported request types:

	threads.create            streaming
	threads.add_user_message  streaming
	threads.custom_action     streaming
	threads.get_by_id         json
	threads.list              json
	threads.update            json
	threads.delete            json
	items.list                json
*/
package chatkit
