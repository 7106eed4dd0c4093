package redis

const (
	fieldData      = "data"
	fieldUpdatedAt = "updated_at"
	fieldRevision  = "revision"

	// putDocumentScript atomically replaces a document and bumps its revision
	putDocumentScript = `
local document_key = KEYS[1]     -- {prefix}history:{key}

local data = ARGV[1]
local updated_at = ARGV[2]

redis.call('HSET', document_key,
  'data', data,
  'updated_at', updated_at
)

return redis.call('HINCRBY', document_key, 'revision', 1)
`
)
