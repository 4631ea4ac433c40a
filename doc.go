/*
Package mapi is the client side of the table protocol spoken over EMSMDB:
it frames remote operations (ROPs), drives server-side table cursors and
encodes restrictions.

We implement:

1. Sessions, which own a Transport, a named property map and the retry
policy. There is no global state; any number of sessions may run side by side.

2. Tables, which wrap a server table handle. A Table caches its column
selection and decodes every fetched row against it.

3. Restrictions, the predicate trees a server uses to filter rows, along
with a local evaluator (Match) for rows already on the client.

Property values are decoded by package propval. Fast Transfer streams are
decoded by package fxparser.

# Technical Details

**ROP buffers.**
Every round trip carries one ROP buffer: a 16-bit RopSize covering itself
and the RopsList, the RopsList itself, and then the server object handle
table. Each ROP request starts with RopId, LogonId and InputHandleIndex;
each response starts with RopId, the handle index and a 32-bit
ReturnValue. Responses are not length-prefixed, so every response is
decoded by the code that issued the request.

**Rows.**
Row data uses the ROP layout of property values (propval.Row): 1-byte
booleans, NUL-terminated strings and 2-byte binary counts. A row is either
standard (every column present) or flagged (a per-column byte says
present, not found, or error).

**Errors.**
Four outcomes are kept apart so callers can branch on them with errors.Is
and errors.As:

  - a *TransportError means no response arrived; only these are retried,
    and never when the context is done;
  - a *ProtocolError carries the server's failure status;
  - a *ResponseError means the response could not be decoded;
  - a *HandleMisuseError (ErrHandleMisuse) is a caller bug, such as using a
    released table or another table's bookmark.

An exhausted table is not an error: FetchRows returns an empty RowSet.
*/
package mapi
