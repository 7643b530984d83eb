package repository

// Source tells where the data of a result came from
type Source int

const (
	SourceRemote Source = iota
	SourceCache
)

func (s Source) String() string {
	switch s {
	case SourceRemote:
		return "remote"
	case SourceCache:
		return "cache"
	}
	return "unknown"
}

// Op names a repository operation for the fallback policy
type Op string

const (
	OpList          Op = "list"
	OpCreate        Op = "create"
	OpJoin          Op = "join"
	OpLeave         Op = "leave"
	OpDelete        Op = "delete"
	OpFetchRequests Op = "fetch_requests"
	OpApprove       Op = "approve"
	OpReject        Op = "reject"
)

// Policy decides which operations may settle for the local cache when the
// remote authority fails. Operations missing from the map fail closed.
// Join request operations have no cached form and always fail closed.
type Policy map[Op]bool

// DefaultPolicy lets group listing and membership edits fail open while
// join request handling always requires the remote authority.
func DefaultPolicy() Policy {
	return Policy{
		OpList:   true,
		OpCreate: true,
		OpJoin:   true,
		OpLeave:  true,
		OpDelete: true,
	}
}

func (p Policy) AcceptsCache(op Op) bool {
	return p[op]
}
