package release

// Mode selects between the two release strategies: a history-rewriting
// flatten deploy and a non-destructive incremental update.
type Mode int

const (
	ModeDeploy Mode = iota
	ModeUpdate
)

// Label returns the mode name used in backup labels and log lines.
func (m Mode) Label() string {
	if m == ModeDeploy {
		return "DEPLOY"
	}
	return "UPDATE"
}

// State enumerates the steps of the release sequence. Each state runs
// exactly once per invocation; the first fatal step failure terminates the
// run.
type State int

const (
	StateVerifyEnv State = iota
	StateCommitMetadata
	StatePreReleaseBackup
	StateBranchFlatten
	StatePushRelease
	StateTagAndPush
	StatePublishHosted
	StateSyncMetadataBack
	StateCleanup
	stateDone
)

var stateNames = map[State]string{
	StateVerifyEnv:        "VERIFY_ENV",
	StateCommitMetadata:   "COMMIT_METADATA",
	StatePreReleaseBackup: "PRE_RELEASE_BACKUP",
	StateBranchFlatten:    "BRANCH_FLATTEN",
	StatePushRelease:      "PUSH_RELEASE",
	StateTagAndPush:       "TAG_AND_PUSH_TAG",
	StatePublishHosted:    "PUBLISH_HOSTED_RELEASE",
	StateSyncMetadataBack: "SYNC_METADATA_BACK",
	StateCleanup:          "CLEANUP",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "DONE"
}

// next returns the state following s. Hosted release publication only
// happens for deploy mode; update mode skips straight to the metadata
// back-sync.
func (s State) next(m Mode) State {
	if s == StateTagAndPush && m != ModeDeploy {
		return StateSyncMetadataBack
	}
	return s + 1
}
