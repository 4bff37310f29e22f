package format

const conversationPrompt = `Format Requirements:
1. Tag Usage:
   - Use <Person1> and <Person2> tags for all dialogue
   - Each speaker's line must be in their own tags
   - Tags must be adjacent (e.g., </Person1><Person2>)
   - No nested or repeated tags (e.g., avoid </Person1><Person1>)

2. Speaker Roles:
   - Person1 and Person2 maintain distinct roles
   - Keep roles consistent throughout
   - No switching roles between speakers

3. Dialogue Structure:
   - Alternate between speakers
   - Each line must be a complete thought
   - No run-on dialogue
   - No untagged speech

Example format:
<Person1>Welcome to the show.</Person1>
<Person2>Thank you for having me.</Person2>
<Person1>Let's begin with our first topic.</Person1>
<Person2>I'd be happy to discuss that.</Person2>`

const conversationLongform = `Format Rules for Long-form Conversation:
1. Tag Usage:
   - Use <Person1> and <Person2> tags for all dialogue
   - Each speaker's line must be in their respective tags
   - Tags must be properly closed
   - No untagged speech

2. Speaker Alternation:
   - Look at the last speaker in CONTEXT
   - If Person1 spoke last, start with Person2
   - If Person2 spoke last, start with Person1
   - Maintain strict alternation between speakers
   - No consecutive same-speaker lines

3. Speaker Roles:
   - Person1 guides discussion and asks questions
   - Person2 provides insights and detailed responses
   - Keep roles consistent throughout

4. Flow Rules:
   - Continue directly from previous context
   - No meta-commentary about parts or breaks
   - No greetings or farewells except when instructed
   - Each line must build on previous context`

const monologuePrompt = `Format Requirements:
1. Tag Usage:
   - Use <Speaker> tags for all content
   - Each paragraph must be in its own tag
   - Tags must be properly closed
   - No nested or repeated tags

2. Paragraph Structure:
   - One complete thought per paragraph
   - No untagged text

3. Voice Format:
   - Single speaker throughout
   - First-person perspective

Example format:
<Speaker>Welcome to this discussion.</Speaker>
<Speaker>Let me share my thoughts on this topic.</Speaker>

Keep each <Speaker> block under 5000 bytes and aim for 2-3 sentences per block.`

const monologueLongform = `Format Rules for Long-form Monologue:
1. Tag Usage:
   - Use <Speaker> tags for each paragraph
   - Tags must be properly closed
   - No untagged text

2. Voice Format:
   - Maintain the same narrative voice and first-person perspective
   - No dialogue or multiple voices

3. Flow Rules:
   - Continue directly from previous context
   - No meta-commentary about parts or breaks
   - No greetings or farewells except when instructed
   - Each paragraph must connect to the next

Keep each <Speaker> block under 5000 bytes and aim for 2-3 sentences per block.`
