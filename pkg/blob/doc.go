/*
Package blob provides content storage for task inputs and outputs.

Audio, video, and document payloads are stored as opaque blobs keyed by
generated IDs. The Store interface covers put/get/stat; BoltStore implements
it on a local BoltDB file with separate content and metadata buckets. Gateway
wraps a Store with size-limit enforcement and is the single path through
which the API, workers, and auditors move blob data.
*/
package blob
