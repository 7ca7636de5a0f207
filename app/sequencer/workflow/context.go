package workflow

import (
	"github.com/orca-so/sedimentology/app/sequencer/activity"
)

// Context holds the workflow context.
type Context struct {
	ActivityContext *activity.Context
}
