// Package imap is an IMAP4rev1 client with a search DSL on top.
//
// A Dialer owns one connection and exposes the protocol verbs:
//
//   - Connecting over implicit TLS, STARTTLS or plain TCP, optionally through
//     an HTTP CONNECT or SOCKS5 proxy
//   - Authenticating with LOGIN or XOAUTH2
//   - Selecting, examining, listing and managing folders
//   - Fetching flags, headers, content, sizes and extension items by UID or
//     sequence number, with a transient sequence number to UID cache
//   - Storing flags, appending, copying, moving and expunging
//   - IDLE with callbacks for EXISTS, EXPUNGE and FETCH
//   - QUOTA, ID, CAPABILITY and raw commands through Exec
//
// Every verb returns a *Response; its Data method only hands out the decoded
// payload when the server answered OK.
//
// On top of that, a Query compiles search criteria, fetches the matching
// messages page by page and builds them with a MessageBuilder. Per-message
// failures are collected instead of aborting when soft fail is on:
//
//	q := d.Query().Where("UNSEEN").Where("SINCE", time.Now().AddDate(0, 0, -7))
//	err := q.Chunk(func(msgs *imap.MessageCollection, page int) error {
//		for _, m := range msgs.Messages() {
//			fmt.Println(m.Subject)
//		}
//		return nil
//	}, 50, 1)
//
// A Dialer is not safe for concurrent use. Nothing in the package reconnects
// or retries on its own; see Reconnect and DialRetry.
package imap
