package cockroach

// Directory answers user and group lookups for the realtime core
type Directory struct {
	*UserRepository
	*GroupRepository
}

// NewDirectory combines the user and group repositories
func NewDirectory(users *UserRepository, groups *GroupRepository) *Directory {
	return &Directory{UserRepository: users, GroupRepository: groups}
}
