package usecase

// Submitter runs background tasks. *ants.Pool satisfies it.
type Submitter interface {
	Submit(task func()) error
}

// inlineSubmitter runs tasks on a fresh goroutine when no pool is wired.
type inlineSubmitter struct{}

func (inlineSubmitter) Submit(task func()) error {
	go task()
	return nil
}
