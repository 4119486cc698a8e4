package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/joss/elf/internal/domain"
	"github.com/joss/elf/internal/examples"
)

const systemPrompt = "You are a task creation AI."

// priorTask is how a previously executed plan is shown as guidance.
type priorTask struct {
	ID               int    `json:"id"`
	Task             string `json:"task"`
	Skill            string `json:"skill"`
	Icon             string `json:"icon"`
	DependentTaskIDs []int  `json:"dependent_task_ids"`
}

func priorGuidance(ex *examples.Example) string {
	prior := make([]priorTask, len(ex.Tasks))
	for i, t := range ex.Tasks {
		deps := t.DependentTaskIDs
		if deps == nil {
			deps = []int{}
		}
		prior[i] = priorTask{ID: t.ID, Task: t.Task, Skill: t.Skill, Icon: t.Icon, DependentTaskIDs: deps}
	}
	data, _ := json.Marshal(prior)
	return fmt.Sprintf(`GUIDANCE:
The below is an objective and a task list that you previously created and executed along with some commentary on how to improve this task list.
PRIOR:
OBJECTIVE=%s
TASK_LIST=%s

`, ex.Objective, data)
}

func exampleGuidance(ex examples.Example) string {
	return fmt.Sprintf("EXAMPLE: OBJECTIVE=%s\nTASK_LIST=%s", ex.Objective, ex.TaskListJSON())
}

func planPrompt(objective, catalog, language, guidance string) string {
	return fmt.Sprintf(`You are an expert task list creation AI tasked with creating a list of tasks as a JSON array, considering the ultimate objective of your team: %s.
Create a very short task list based on the objective, the final output of the last task will be provided back to the user.
Limit tasks types to those that can be completed with the available skills listed below. Task description should be detailed.###
AVAILABLE SKILLS: %s.###
RULES:
Do not use skills that are not listed.
Always include one skill.
Do not create files unless specified in the objective.
dependent_task_ids should always be an empty array, or an array of numbers representing the task ID it should pull results from.
Make sure all task IDs are in chronological order.###
Output must be answered in %s.
%s

OBJECTIVE=%s
TASK_LIST=`, objective, catalog, language, guidance, objective)
}

// reflectionExample shows the expected output shape.
var reflectionExample = func() string {
	type ex struct {
		ID               int    `json:"id"`
		Task             string `json:"task"`
		Skill            string `json:"skill"`
		Icon             string `json:"icon"`
		DependentTaskIDs []int  `json:"dependent_task_ids"`
		Status           string `json:"status"`
	}
	triple := []any{
		[]ex{
			{ID: 3, Task: "New task 1 description", Skill: "text_completion", Icon: "🤖", DependentTaskIDs: []int{}, Status: "complete"},
			{ID: 4, Task: "New task 2 description", Skill: "text_completion", Icon: "🤖", DependentTaskIDs: []int{}, Status: "incomplete"},
		},
		[]int{2, 3},
		[]ex{
			{ID: 5, Task: "Complete the objective and provide a final report", Skill: "text_completion", Icon: "🤖", DependentTaskIDs: []int{1, 2, 3, 4}, Status: "incomplete"},
		},
	}
	data, _ := json.Marshal(triple)
	return string(data)
}()

func reflectionPrompt(objective, output, catalog string, current []domain.Task) string {
	list, _ := json.Marshal(current)
	return fmt.Sprintf(`You are an expert task manager, review the task output to decide at least one new task to add.
As you add a new task, see if there are any tasks that need to be updated (such as updating dependencies).
Use the current task list as reference.
considering the ultimate objective of your team: %s.
Do not add duplicate tasks to those in the current task list.
Only provide JSON as your response without further comments.
Every new and updated task must include all variables, even they are empty array.
Dependent IDs must be smaller than the ID of the task.
New tasks IDs should be no larger than the last task ID.
Always select at least one skill.
Task IDs should be unique and in chronological order.
Do not change the status of complete tasks.
Only add skills from the AVAILABLE SKILLS, using the exact same spelling.
Provide your array as a JSON array with double quotes. The first object is new tasks to add as a JSON array, the second array lists the ID numbers where the new tasks should be added after (number of ID numbers matches array), The number of elements in the first and second arrays will always be the same.
And the third array provides the tasks that need to be updated.
Make sure to keep dependent_task_ids key, even if an empty array.
OBJECTIVE: %s.
AVAILABLE SKILLS: %s.
Here is the last task output: %s
Here is the current task list: %s
EXAMPLE OUTPUT FORMAT = %s
OUTPUT = `, objective, objective, catalog, output, list, reflectionExample)
}
