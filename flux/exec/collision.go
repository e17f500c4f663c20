package exec

import "sort"

// checkDisjoint implements the debug-mode detector spec.md §9 asks for:
// branches MUST write to disjoint results[name] keys; this asserts that
// and returns every name written by more than one branch, for logging.
func checkDisjoint(writesByBranch map[string][]string) []string {
	owner := map[string]string{}
	collisionSet := map[string]bool{}

	for branch, names := range writesByBranch {
		for _, name := range names {
			if prev, ok := owner[name]; ok && prev != branch {
				collisionSet[name] = true
				continue
			}
			owner[name] = branch
		}
	}

	collisions := make([]string, 0, len(collisionSet))
	for name := range collisionSet {
		collisions = append(collisions, name)
	}
	sort.Strings(collisions)
	return collisions
}
