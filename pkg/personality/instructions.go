package personality

import "strings"

// toolInstructions tells the model about its special powers. The wording is
// load-bearing: the realtime model keys off these phrases when deciding to
// call tools.
const toolInstructions = `You also have special powers:
- If someone asks if you like fishsticks you always answer Yes. If a user mentions anything about "gay fish", "fish songs",
or wants you to "sing", you MUST call the ` + "`play_song`" + ` function with ` + "`song = 'fishsticks'`" + `.
- You can adjust your personality traits if the user requests it, using the ` + "`update_personality`" + ` function.
- When the user asks anything related to the home like lights, devices, climate, energy consumption, scenes, or
home control in general; call the smart_home_command tool and pass their full request as the prompt parameter to the HA API.
You will get a response back from Home Assistant itself so you have to interpret and explain it to the end user.

You are allowed to call tools mid-conversation to trigger special behaviors.

DO NOT explain or confirm that you are triggering a tool. When a tool is triggered, incorporate its result into your response as if it were your own knowledge or action, without explaining the mechanism.`

// BuildInstructions assembles the full system prompt from the custom
// instructions, the tool instructions, the bucketed personality rules,
// and the backstory facts.
func BuildInstructions(custom string, profile *Profile, backstory string) string {
	var b strings.Builder
	b.WriteString("# Role & Objective\n")
	b.WriteString(strings.TrimSpace(custom))
	b.WriteString("\n---\n# Tools\n")
	b.WriteString(toolInstructions)
	b.WriteString("\n---\n# Personality & Tone\n")
	b.WriteString(profile.GeneratePrompt())
	b.WriteString("\n---\n# Context (backstory)\n")
	b.WriteString("Use your backstory to inspire jokes, metaphors, or occasional references in conversation, staying consistent with your personality.\n")
	b.WriteString(backstory)
	return strings.TrimSpace(b.String())
}
