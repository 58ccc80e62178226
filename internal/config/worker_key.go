package config

type WorkerKeyStruct struct {
	PersistActivityQueue   string
	PersistAnswersQueue    string
	PersistLayoutQueue     string
	PersistCompletionQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistActivityQueue:   "persist_activity_queue",
	PersistAnswersQueue:    "persist_answers_queue",
	PersistLayoutQueue:     "persist_layout_queue",
	PersistCompletionQueue: "persist_completion_queue",
}
