package room

// voteTally counts vote-kick votes per target. Callers hold the room lock.
type voteTally struct {
	votes map[int32]map[int32]struct{}
}

func newVoteTally() *voteTally {
	return &voteTally{votes: make(map[int32]map[int32]struct{})}
}

// add records a vote and returns the distinct voter count. Voting twice
// for the same target changes nothing.
func (t *voteTally) add(voter, target int32) int {
	voters := t.votes[target]
	if voters == nil {
		voters = make(map[int32]struct{})
		t.votes[target] = voters
	}
	voters[voter] = struct{}{}
	return len(voters)
}

func (t *voteTally) clearTarget(target int32) {
	delete(t.votes, target)
}

// removeVoter withdraws a leaving member's votes against everyone.
func (t *voteTally) removeVoter(voter int32) {
	for target, voters := range t.votes {
		delete(voters, voter)
		if len(voters) == 0 {
			delete(t.votes, target)
		}
	}
}

// CastVote registers one vote-kick vote. Reaching the configured threshold
// kicks the target; the vote is then forgotten. Returns whether the target
// was kicked.
func (r *Room) CastVote(voter, target int32) bool {
	r.mu.Lock()
	if _, ok := r.players[voter]; !ok {
		r.mu.Unlock()
		return false
	}
	if _, ok := r.players[target]; !ok || voter == target {
		r.mu.Unlock()
		return false
	}
	count := r.votes.add(voter, target)
	threshold := r.cfg.Room.VotekickThreshold
	if count < threshold {
		r.mu.Unlock()
		r.logger.Debug("vote recorded", "voter", voter, "target", target, "count", count)
		return false
	}
	r.votes.clearTarget(target)
	ban := r.cfg.Room.VotekickBan
	r.mu.Unlock()

	r.logger.Info("vote kick passed", "target", target, "votes", count, "ban", ban)
	r.Kick(target, ban)
	return true
}
